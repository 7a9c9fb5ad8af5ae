package intercept

import (
	"encoding/hex"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/blake2b"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRequestID derives a request id of the form
// <topic>_<method>_<unix ms>_<params digest>_<random>.
func NewRequestID(topic, method string, params []byte) string {
	return fmt.Sprintf("%s_%s_%d_%s_%s",
		topic,
		method,
		time.Now().UnixMilli(),
		paramsDigest(params),
		gonanoid.MustGenerate(idAlphabet, 6),
	)
}

func paramsDigest(params []byte) string {
	h, _ := blake2b.New(4, nil)
	h.Write(params)
	return hex.EncodeToString(h.Sum(nil))
}
