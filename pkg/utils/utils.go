package utils

import (
	"math/rand"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"
)

var (
	src        = rand.NewSource(time.Now().UnixNano())
	emailRegex = regexp.MustCompile("(?i)^[a-z0-9_.+-]+@[a-z0-9-]+\\.[a-z0-9-.]+$")
	// localhost deployments serve media without a dotted host.
	urlRegex   = regexp.MustCompile(`^(http:\/\/www\.|https:\/\/www\.|http:\/\/|https:\/\/)?([a-z0-9]+([\-\.]{1}[a-z0-9]+)*\.[a-z]{2,5}|localhost)(:[0-9]{1,5})?(\/.*)?$`)
	videoRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{6,16}$`)
)

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Room codes avoid lowercase so they survive case-insensitive human entry.
const roomCodeBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	letterIdxBits = 6                    // 6 bits to represent a letter index
	letterIdxMask = 1<<letterIdxBits - 1 // All 1-bits, as many as letterIdxBits
	letterIdxMax  = 63 / letterIdxBits   // # of letter indices fitting in 63 bits
)

// Returns a random string of the specified length
func RandString(length int) string {
	return randFrom(letterBytes, length)
}

// RandRoomCode returns a short uppercase alphanumeric code suitable for
// humans to read out and retype.
func RandRoomCode(length int) string {
	return randFrom(roomCodeBytes, length)
}

func randFrom(alphabet string, length int) string {
	b := make([]byte, length)
	for i, cache, remain := length-1, src.Int63(), letterIdxMax; i >= 0; {
		if remain == 0 {
			cache, remain = src.Int63(), letterIdxMax
		}
		if idx := int(cache & letterIdxMask); idx < len(alphabet) {
			b[i] = alphabet[idx]
			i--
		}
		cache >>= letterIdxBits
		remain--
	}
	return string(b)
}

// ParseInt converts val to int by min max conditions, on error returns default value
func ParseInt(val string, def, min, max int) int {
	v, _ := strconv.Atoi(val)
	if v < min || v > max {
		v = def
	}
	return v
}

func IsLengthValid(str string, minLen, maxLen int) bool {
	length := utf8.RuneCountInString(str)
	return length >= minLen && length <= maxLen
}

func IsEmailValid(email string) bool {
	return IsLengthValid(email, 2, 50) && emailRegex.MatchString(email)
}

func IsUrlValid(url string) bool {
	return urlRegex.MatchString(url)
}

// IsVideoIDValid accepts external video identifiers (YouTube ids are 11
// chars from [A-Za-z0-9_-], we allow a little slack around that).
func IsVideoIDValid(id string) bool {
	return videoRegex.MatchString(id)
}
