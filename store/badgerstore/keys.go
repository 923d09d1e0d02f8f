package badgerstore

import (
	"bytes"
	"fmt"
)

// physicalKey renders the badger key for one item under one index:
// table \x00 index-marker \x00 partitionValue \x00 sortValue. The
// index marker is "primary" for the table's own key, or "idx:<name>"
// for a denormalized secondary-index projection, mirroring how a real
// DynamoDB GSI holds its own copy of projected attributes (datalog's
// teacher analogue is its EAVT/AEVT/... index family in
// datalog/storage/key_encoder_binary.go — one physical key per index
// per datom).
func physicalKey(table, indexMarker string, partitionValue, sortValue []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(table)
	buf.WriteByte(0)
	buf.WriteString(indexMarker)
	buf.WriteByte(0)
	buf.Write(partitionValue)
	buf.WriteByte(0)
	buf.Write(sortValue)
	return buf.Bytes()
}

func primaryMarker() string { return "primary" }

func indexMarker(name string) string {
	if name == "" {
		return primaryMarker()
	}
	return fmt.Sprintf("idx:%s", name)
}

// prefixFor builds the scan prefix for a partition value (no sort
// bound): everything with this partition shares this prefix.
func prefixFor(table, indexMarker string, partitionValue []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(table)
	buf.WriteByte(0)
	buf.WriteString(indexMarker)
	buf.WriteByte(0)
	buf.Write(partitionValue)
	buf.WriteByte(0)
	return buf.Bytes()
}
