package tuyalink

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// versionHeader precedes encrypted CONTROL payloads: "3.3" and 12 zero bytes.
var versionHeader = append([]byte("3.3"), make([]byte, 12)...)

// ecb is AES-128 in ECB mode with PKCS#7 padding, as the device expects.
type ecb struct {
	block cipher.Block
}

func newECB(key []byte) (*ecb, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &ecb{block: block}, nil
}

func (e *ecb) encrypt(plain []byte) []byte {
	bs := e.block.BlockSize()
	pad := bs - len(plain)%bs
	buf := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	for i := 0; i < len(buf); i += bs {
		e.block.Encrypt(buf[i:i+bs], buf[i:i+bs])
	}
	return buf
}

func (e *ecb) decrypt(ct []byte) ([]byte, error) {
	bs := e.block.BlockSize()
	if len(ct) == 0 || len(ct)%bs != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrDecrypt, len(ct))
	}
	buf := append([]byte{}, ct...)
	for i := 0; i < len(buf); i += bs {
		e.block.Decrypt(buf[i:i+bs], buf[i:i+bs])
	}
	pad := int(buf[len(buf)-1])
	if pad == 0 || pad > bs {
		return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
	}
	for _, b := range buf[len(buf)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: bad padding", ErrDecrypt)
		}
	}
	return buf[:len(buf)-pad], nil
}

// stripVersionHeader removes a leading "3.3" header if present.
func stripVersionHeader(p []byte) []byte {
	if len(p) >= len(versionHeader) && bytes.HasPrefix(p, []byte("3.3")) {
		return p[len(versionHeader):]
	}
	return p
}
