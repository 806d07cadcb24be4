package config

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// blob is the on-storage layout: fixed-size, NUL padded, little endian.
type blob struct {
	Marker           uint32
	NetworkID        [NetworkIDSize + 1]byte
	NetworkSecret    [SecretSize + 1]byte
	BrokerAddress    [BrokerAddressSize + 1]byte
	BrokerPort       int32
	BrokerUsername   [UsernameSize + 1]byte
	BrokerUserSecret [SecretSize + 1]byte
	DataTopic        [TopicSize + 1]byte
	LastWillMessage  [LastWillMessageSize + 1]byte
	CommandTopic     [TopicSize + 1]byte
	ClientID         [ClientIDSize + 1]byte
	DotDurationMs    int32
	TonePitchHz      int32
	Debug            uint8
}

// BlobSize is the number of bytes a record occupies in storage.
var BlobSize = binary.Size(blob{})

// Encode serializes r into its fixed-size layout. Text longer than its
// field is truncated.
func Encode(r Record) []byte {
	var b blob
	b.Marker = r.Marker
	putText(b.NetworkID[:], r.NetworkID)
	putText(b.NetworkSecret[:], r.NetworkSecret)
	putText(b.BrokerAddress[:], r.BrokerAddress)
	b.BrokerPort = int32(r.BrokerPort)
	putText(b.BrokerUsername[:], r.BrokerUsername)
	putText(b.BrokerUserSecret[:], r.BrokerUserSecret)
	putText(b.DataTopic[:], r.DataTopic)
	putText(b.LastWillMessage[:], r.LastWillMessage)
	putText(b.CommandTopic[:], r.CommandTopic)
	putText(b.ClientID[:], r.ClientID)
	b.DotDurationMs = int32(r.DotDurationMs)
	b.TonePitchHz = int32(r.TonePitchHz)
	if r.Debug {
		b.Debug = 1
	}
	var buf bytes.Buffer
	buf.Grow(BlobSize)
	// writes to a bytes.Buffer of a fixed-size struct cannot fail.
	binary.Write(&buf, binary.LittleEndian, &b)
	return buf.Bytes()
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (Record, error) {
	if len(data) < BlobSize {
		return Record{}, fmt.Errorf("%w: %d bytes, want %d", ErrLayout, len(data), BlobSize)
	}
	var b blob
	if err := binary.Read(bytes.NewReader(data[:BlobSize]), binary.LittleEndian, &b); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrLayout, err)
	}
	return Record{
		Marker:           b.Marker,
		NetworkID:        getText(b.NetworkID[:]),
		NetworkSecret:    getText(b.NetworkSecret[:]),
		BrokerAddress:    getText(b.BrokerAddress[:]),
		BrokerPort:       int(b.BrokerPort),
		BrokerUsername:   getText(b.BrokerUsername[:]),
		BrokerUserSecret: getText(b.BrokerUserSecret[:]),
		DataTopic:        getText(b.DataTopic[:]),
		LastWillMessage:  getText(b.LastWillMessage[:]),
		CommandTopic:     getText(b.CommandTopic[:]),
		ClientID:         getText(b.ClientID[:]),
		DotDurationMs:    int(b.DotDurationMs),
		TonePitchHz:      int(b.TonePitchHz),
		Debug:            b.Debug != 0,
	}, nil
}

// putText copies s into dst keeping the last byte as terminator.
func putText(dst []byte, s string) {
	copy(dst[:len(dst)-1], s)
}

func getText(src []byte) string {
	if n := bytes.IndexByte(src, 0); n >= 0 {
		return string(src[:n])
	}
	return string(src)
}
