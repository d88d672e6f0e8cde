/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: keys.go
Description: ADB key material. Loads the adbkey/adbkey.pub pair from a key directory, checks
that both halves belong together, and exposes the fingerprint the device shows on its
authorization prompt. Also generates fresh pairs in the format the adb tools expect.
*/

package mobile

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	// PrivateKeyFile and PublicKeyFile are the fixed key names inside the key directory
	PrivateKeyFile = "adbkey"
	PublicKeyFile  = "adbkey.pub"

	// HomePlaceholder is replaced by the user's home directory in key paths
	HomePlaceholder = "HOME"

	// DefaultKeyDir is where the Android SDK stores adb keys on Linux
	DefaultKeyDir = HomePlaceholder + "/.android"

	adbKeyBits       = 2048
	adbModulusBytes  = adbKeyBits / 8
	adbModulusWords  = adbModulusBytes / 4
	adbPublicKeySize = 4 + 4 + adbModulusBytes + adbModulusBytes + 4
)

var (
	// ErrKeyNotFound is returned when either half of the key pair is missing
	ErrKeyNotFound = errors.New("adb key was not found")
	// ErrKeyMismatch is returned when adbkey.pub does not belong to adbkey
	ErrKeyMismatch = errors.New("adb public key does not match private key")
	// ErrKeyExists is returned by GenerateKeyPair when it would overwrite a key
	ErrKeyExists = errors.New("adb key already exists")
)

// Signer holds a loaded adb key pair
type Signer struct {
	Dir            string
	PrivateKeyPath string
	PublicKeyPath  string

	key         *rsa.PrivateKey
	fingerprint string
}

// ResolveKeyDir expands a leading HOME, $HOME or ~ to the user's home directory
func ResolveKeyDir(dir string) (string, error) {
	var rest string
	switch {
	case strings.HasPrefix(dir, "$"+HomePlaceholder):
		rest = strings.TrimPrefix(dir, "$"+HomePlaceholder)
	case strings.HasPrefix(dir, HomePlaceholder):
		rest = strings.TrimPrefix(dir, HomePlaceholder)
	case strings.HasPrefix(dir, "~"):
		rest = strings.TrimPrefix(dir, "~")
	default:
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return home + rest, nil
}

// LoadSigner reads and validates the key pair stored in dir
func LoadSigner(dir string) (*Signer, error) {
	resolved, err := ResolveKeyDir(dir)
	if err != nil {
		return nil, err
	}
	s := &Signer{
		Dir:            resolved,
		PrivateKeyPath: filepath.Join(resolved, PrivateKeyFile),
		PublicKeyPath:  filepath.Join(resolved, PublicKeyFile),
	}
	if !isFile(s.PrivateKeyPath) || !isFile(s.PublicKeyPath) {
		return nil, fmt.Errorf("%w in %s", ErrKeyNotFound, resolved)
	}

	privatePEM, err := os.ReadFile(s.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	publicText, err := os.ReadFile(s.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	raw, err := ssh.ParseRawPrivateKey(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", raw)
	}

	blob, public, err := DecodeAndroidPublicKey(string(publicText))
	if err != nil {
		return nil, err
	}
	if public.N.Cmp(key.N) != 0 || public.E != key.E {
		return nil, ErrKeyMismatch
	}

	s.key = key
	s.fingerprint = fingerprint(blob)
	return s, nil
}

// IsDefault reports whether the key lives in the adb default directory, which every adb
// server loads on its own
func (s *Signer) IsDefault() bool {
	def, err := ResolveKeyDir(DefaultKeyDir)
	if err != nil {
		return false
	}
	return filepath.Clean(s.Dir) == filepath.Clean(def)
}

// Fingerprint returns the MD5 fingerprint shown by the device authorization dialog
func (s *Signer) Fingerprint() string {
	return s.fingerprint
}

// PublicKey returns the RSA public key
func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// VendorKeysEnv returns the environment entry that makes the adb server use this key
func (s *Signer) VendorKeysEnv() string {
	return "ADB_VENDOR_KEYS=" + s.PrivateKeyPath
}

// EncodeAndroidPublicKey serialises pub in the adbkey.pub format: a base64 RSAPublicKey
// structure followed by a comment
func EncodeAndroidPublicKey(pub *rsa.PublicKey, comment string) (string, error) {
	if pub.N.BitLen() != adbKeyBits {
		return "", fmt.Errorf("adb keys must be %d bits, got %d", adbKeyBits, pub.N.BitLen())
	}

	r32 := new(big.Int).Lsh(big.NewInt(1), 32)
	n0 := new(big.Int).Mod(pub.N, r32)
	n0inv := new(big.Int).ModInverse(n0, r32)
	n0inv.Sub(r32, n0inv)

	rr := new(big.Int).Lsh(big.NewInt(1), 2*adbKeyBits)
	rr.Mod(rr, pub.N)

	blob := make([]byte, adbPublicKeySize)
	binary.LittleEndian.PutUint32(blob[0:], adbModulusWords)
	binary.LittleEndian.PutUint32(blob[4:], uint32(n0inv.Uint64()))
	putLittleEndian(blob[8:8+adbModulusBytes], pub.N)
	putLittleEndian(blob[8+adbModulusBytes:8+2*adbModulusBytes], rr)
	binary.LittleEndian.PutUint32(blob[8+2*adbModulusBytes:], uint32(pub.E))

	encoded := base64.StdEncoding.EncodeToString(blob)
	if comment != "" {
		encoded += " " + comment
	}
	return encoded, nil
}

// DecodeAndroidPublicKey parses adbkey.pub content into the raw blob and RSA key
func DecodeAndroidPublicKey(text string) ([]byte, *rsa.PublicKey, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, nil, errors.New("empty adb public key")
	}
	blob, err := base64.StdEncoding.DecodeString(fields[0])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid adb public key encoding: %w", err)
	}
	if len(blob) != adbPublicKeySize {
		return nil, nil, fmt.Errorf("invalid adb public key size: %d", len(blob))
	}
	if words := binary.LittleEndian.Uint32(blob[0:]); words != adbModulusWords {
		return nil, nil, fmt.Errorf("unsupported adb public key length: %d words", words)
	}

	pub := &rsa.PublicKey{
		N: readLittleEndian(blob[8 : 8+adbModulusBytes]),
		E: int(binary.LittleEndian.Uint32(blob[8+2*adbModulusBytes:])),
	}
	return blob, pub, nil
}

// GenerateKeyPair creates a new 2048-bit adb key pair in dir
func GenerateKeyPair(dir string) (*Signer, error) {
	resolved, err := ResolveKeyDir(dir)
	if err != nil {
		return nil, err
	}
	privatePath := filepath.Join(resolved, PrivateKeyFile)
	publicPath := filepath.Join(resolved, PublicKeyFile)
	if isFile(privatePath) || isFile(publicPath) {
		return nil, fmt.Errorf("%w in %s", ErrKeyExists, resolved)
	}

	key, err := rsa.GenerateKey(rand.Reader, adbKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	public, err := EncodeAndroidPublicKey(&key.PublicKey, keyComment())
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(resolved, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(privatePath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(publicPath, []byte(public+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	return LoadSigner(resolved)
}

func keyComment() string {
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return name + "@" + host
}

func fingerprint(blob []byte) string {
	sum := md5.Sum(blob)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// putLittleEndian writes v into dst least significant byte first
func putLittleEndian(dst []byte, v *big.Int) {
	be := v.FillBytes(make([]byte, len(dst)))
	for i := range be {
		dst[i] = be[len(be)-1-i]
	}
}

func readLittleEndian(src []byte) *big.Int {
	be := make([]byte, len(src))
	for i := range src {
		be[i] = src[len(src)-1-i]
	}
	return new(big.Int).SetBytes(be)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
