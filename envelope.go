package profusion

import (
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Envelope metadata embedded in every saved filter.
const (
	Version = "1.0.2"
	Program = "profusion"
)

// Wire type tags. The tag selects which body schema the blob carries;
// loading a file under the wrong variant fails with ErrFormat.
const (
	typeBloom         = "bloom"
	typeCountingBloom = "counting bloom"
	typeScalableBloom = "scalable bloom"
)

type envelope struct {
	Version string          `json:"version"`
	Program string          `json:"program"`
	Type    string          `json:"type"`
	Bloom   json.RawMessage `json:"bloom"`
}

// saveEnvelope writes body under the given type tag as a
// gzip-compressed JSON envelope at path.
func saveEnvelope(path, typ string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode filter body")
	}
	blob, err := json.Marshal(envelope{
		Version: Version,
		Program: Program,
		Type:    typ,
		Bloom:   raw,
	})
	if err != nil {
		return errors.Wrap(err, "encode filter envelope")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create filter file")
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(blob); err != nil {
		f.Close()
		return errors.Wrap(err, "write filter file")
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return errors.Wrap(err, "flush filter file")
	}
	return errors.Wrap(f.Close(), "close filter file")
}

// loadEnvelope reads the envelope at path, checks the type tag and
// returns the still-encoded variant body.
func loadEnvelope(path, typ string) (json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open filter file")
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}
	defer zr.Close()

	blob, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}

	var env envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}
	if env.Type != typ {
		return nil, errors.Wrapf(ErrFormat, "invalid type: %q", env.Type)
	}
	if len(env.Bloom) == 0 {
		return nil, errors.Wrap(ErrFormat, "missing bloom body")
	}
	return env.Bloom, nil
}

// decodeBitArray decodes a hex bit-array payload and checks it holds
// exactly ceil(bins/8) octets.
func decodeBitArray(payload string, bins int) ([]byte, error) {
	return decodePayload(payload, (bins+7)/8)
}

// decodePayload decodes a hex payload of an exact expected size.
func decodePayload(payload string, octets int) ([]byte, error) {
	bf, err := hex.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(ErrFormat, err.Error())
	}
	if len(bf) != octets {
		return nil, errors.Wrapf(ErrFormat, "payload is %d octets, want %d", len(bf), octets)
	}
	return bf, nil
}
