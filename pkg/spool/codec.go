package spool

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/weirlab/weir/pkg/record"
)

// Record wire format, big endian:
//
//	int64  timestamp (unix nanoseconds)
//	uint32 original length
//	uint32 actual length
//	uint32 payload length
//	bytes  payload
const recordHeaderSize = 8 + 4 + 4 + 4

// EncodeBatch serializes a batch into the spool record format.
func EncodeBatch(batch record.Batch) []byte {
	size := 0
	for _, r := range batch {
		size += recordHeaderSize + len(r.Data)
	}

	buf := make([]byte, 0, size)
	for _, r := range batch {
		var hdr [recordHeaderSize]byte
		binary.BigEndian.PutUint64(hdr[0:8], uint64(r.Timestamp.UnixNano()))
		binary.BigEndian.PutUint32(hdr[8:12], r.OriginalLength)
		binary.BigEndian.PutUint32(hdr[12:16], r.ActualLength)
		binary.BigEndian.PutUint32(hdr[16:20], uint32(len(r.Data)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, r.Data...)
	}
	return buf
}

// DecodeBatch parses a spool-format byte slice back into a batch.
func DecodeBatch(data []byte) (record.Batch, error) {
	var batch record.Batch
	for len(data) > 0 {
		if len(data) < recordHeaderSize {
			return nil, fmt.Errorf("spool: truncated record header: %d bytes left", len(data))
		}
		ts := int64(binary.BigEndian.Uint64(data[0:8]))
		origLen := binary.BigEndian.Uint32(data[8:12])
		actLen := binary.BigEndian.Uint32(data[12:16])
		payloadLen := int(binary.BigEndian.Uint32(data[16:20]))
		data = data[recordHeaderSize:]

		if payloadLen > len(data) {
			return nil, fmt.Errorf("spool: truncated payload: want %d bytes, have %d", payloadLen, len(data))
		}
		payload := make([]byte, payloadLen)
		copy(payload, data[:payloadLen])
		data = data[payloadLen:]

		batch = append(batch, record.Record{
			Timestamp:      time.Unix(0, ts).UTC(),
			Data:           payload,
			OriginalLength: origLen,
			ActualLength:   actLen,
		})
	}
	return batch, nil
}
