package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// ErrDecrypt indica ciphertext corrompido ou cifrado com outra chave. Não é
// recuperável: o usuário precisa reenviar o kubeconfig.
var ErrDecrypt = errors.New("ciphertext inválido ou chave incorreta")

// Cipher cifra e decifra blobs opacos (kubeconfigs) com AES-256-GCM usando
// uma única chave process-wide.
type Cipher struct {
	aead cipher.AEAD
}

// New cria um Cipher a partir da chave simétrica. A chave deve ter 32 bytes.
func New(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, errors.New("chave AES deve ter 32 bytes (AES-256)")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt cifra o plaintext e devolve nonce||ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decifra nonce||ciphertext. Qualquer adulteração resulta em
// ErrDecrypt, nunca em plaintext parcial.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce := ciphertext[:c.aead.NonceSize()]
	data := ciphertext[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
