package emberdb

import (
	"bytes"
	"encoding/base64"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/ipc"
)

// decodeArrowRecords decodes a base64 encoded Arrow IPC stream into record batches.
func decodeArrowRecords(data []byte) ([]arrow.Record, error) {
	decoder := base64.NewDecoder(base64.StdEncoding, bytes.NewReader(data))
	reader, err := ipc.NewReader(decoder, ipc.WithDelayReadSchema(true))
	if err != nil {
		return nil, err
	}

	records := make([]arrow.Record, 0)
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}
	return records, reader.Err()
}
