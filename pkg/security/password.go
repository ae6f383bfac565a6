package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/salesledger/pkg/config"
)

// ErrInvalidHash signals a malformed Argon2id hash string.
var ErrInvalidHash = errors.New("invalid argon2id hash")

// ArgonParams are encoded into every hash string so old hashes stay verifiable.
type ArgonParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// weakerThan reports whether p costs less than want on any axis that matters
// for brute force.
func (p ArgonParams) weakerThan(want ArgonParams) bool {
	return p.Memory < want.Memory || p.Time < want.Time || p.KeyLen < want.KeyLen
}

func paramsFromConfig(cfg config.PasswordConfig) ArgonParams {
	return ArgonParams{
		Memory:      uint32(clamp(cfg.ArgonMemoryKB, 8, 512*1024)),
		Time:        uint32(clamp(cfg.ArgonTime, 1, 10)),
		Parallelism: uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		SaltLen:     uint32(clamp(cfg.ArgonSaltLen, 8, 64)),
		KeyLen:      uint32(clamp(cfg.ArgonKeyLen, 16, 64)),
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// encodedHash is the PHC form: $argon2id$v=19$m=..,t=..,p=..$salt$key.
type encodedHash struct {
	params ArgonParams
	salt   []byte
	key    []byte
}

func (h encodedHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key))
}

func parseHash(encoded string) (encodedHash, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return encodedHash{}, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return encodedHash{}, ErrInvalidHash
	}

	var h encodedHash
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Time, &h.params.Parallelism); err != nil {
		return encodedHash{}, ErrInvalidHash
	}
	if h.params.Memory == 0 || h.params.Time == 0 || h.params.Parallelism == 0 {
		return encodedHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil || len(h.salt) == 0 {
		return encodedHash{}, ErrInvalidHash
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil || len(h.key) == 0 {
		return encodedHash{}, ErrInvalidHash
	}
	h.params.SaltLen = uint32(len(h.salt))
	h.params.KeyLen = uint32(len(h.key))
	return h, nil
}

func derive(password string, salt []byte, p ArgonParams) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
}

// HashPassword returns a PHC-formatted Argon2id hash using the configured cost.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	params := paramsFromConfig(cfg)
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return encodedHash{params: params, salt: salt, key: derive(password, salt, params)}.String(), nil
}

// VerifyPassword re-derives the key with the parameters stored in encoded and
// compares in constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	h, err := parseHash(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(h.key, derive(password, h.salt, h.params)) == 1, nil
}

// NeedsRehash reports whether encoded is unreadable or was produced with
// weaker parameters than cfg asks for.
func NeedsRehash(encoded string, cfg config.PasswordConfig) bool {
	h, err := parseHash(encoded)
	if err != nil {
		return true
	}
	return h.params.weakerThan(paramsFromConfig(cfg))
}

const (
	upperChars = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerChars = "abcdefghijkmnopqrstuvwxyz"
	digitChars = "23456789"
)

// GenerateTempPassword returns an alphanumeric password with at least one
// upper-case letter, lower-case letter and digit. Look-alike characters
// (0/O, 1/l/I) are excluded so operators can read it out.
func GenerateTempPassword(length int) (string, error) {
	classes := []string{upperChars, lowerChars, digitChars}
	if length < len(classes) {
		return "", fmt.Errorf("length must be at least %d", len(classes))
	}
	all := strings.Join(classes, "")

	out := make([]byte, length)
	for i := range out {
		set := all
		if i < len(classes) {
			set = classes[i]
		}
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out[i] = c
	}
	// Move the guaranteed characters away from the front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
