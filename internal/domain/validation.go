package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// DigestSize is the byte length of a commitment digest.
	DigestSize = 32
	// SaltSize is the byte length of a commitment salt.
	SaltSize = 32

	OctasPerAPT uint64 = 100_000_000

	MinCommitOctas uint64 = OctasPerAPT / 100    // 0.01 APT
	MaxCommitOctas uint64 = 10_000 * OctasPerAPT // 10,000 APT

	MinCommitDurationSecs = 3600
	MaxCommitDurationSecs = 604800
	MinRevealDurationSecs = 1800
	MaxRevealDurationSecs = 86400

	MinQuestionLen = 10
	MaxQuestionLen = 200

	DefaultFeeBps uint64 = 250
)

var (
	accountAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	shortAddressRe   = regexp.MustCompile(`^0x[a-fA-F0-9]{1,64}$`)
	saltRe           = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
)

// IsAccountAddress reports whether addr is a full-length 0x account address.
func IsAccountAddress(addr string) bool {
	return accountAddressRe.MatchString(addr)
}

// IsShortAddress accepts any 0x address up to 32 bytes, including special
// shorthand forms such as 0x1 or 0xCAFE.
func IsShortAddress(addr string) bool {
	return shortAddressRe.MatchString(addr)
}

// IsSaltHex reports whether s is a 32-byte salt in hex without prefix.
func IsSaltHex(s string) bool {
	return saltRe.MatchString(s)
}

// ValidateCommitAmount checks a stake in octas against the allowed range.
func ValidateCommitAmount(octas uint64) error {
	if octas < MinCommitOctas {
		return fmt.Errorf("%w: minimum bet is %s APT", ErrInvalidInput, FormatOctas(MinCommitOctas))
	}
	if octas > MaxCommitOctas {
		return fmt.Errorf("%w: maximum bet is %s APT", ErrInvalidInput, FormatOctas(MaxCommitOctas))
	}
	return nil
}

// ValidateQuestion checks the market question length in characters.
func ValidateQuestion(q string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(q))
	if n < MinQuestionLen {
		return fmt.Errorf("%w: question must be at least %d characters", ErrInvalidInput, MinQuestionLen)
	}
	if n > MaxQuestionLen {
		return fmt.Errorf("%w: question must be at most %d characters", ErrInvalidInput, MaxQuestionLen)
	}
	return nil
}

// ValidateDurations checks commit and reveal window lengths in seconds.
func ValidateDurations(commitSecs, revealSecs uint64) error {
	if commitSecs < MinCommitDurationSecs || commitSecs > MaxCommitDurationSecs {
		return fmt.Errorf("%w: commit duration must be between 1 hour and 7 days", ErrInvalidInput)
	}
	if revealSecs < MinRevealDurationSecs || revealSecs > MaxRevealDurationSecs {
		return fmt.Errorf("%w: reveal duration must be between 30 minutes and 24 hours", ErrInvalidInput)
	}
	return nil
}

// ValidateCategory checks c against the known categories.
func ValidateCategory(c Category) error {
	switch c {
	case CategoryCrypto, CategorySports, CategoryTrends, CategoryWeather, CategoryCustom:
		return nil
	}
	return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, c)
}

// ParseAPTToOctas converts a decimal APT amount to octas. Digits past the
// eighth decimal place are dropped (floor).
func ParseAPTToOctas(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidInput)
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("%w: amount %q must be an unsigned decimal", ErrInvalidInput, s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if strings.TrimLeft(frac, "0123456789") != "" {
		return 0, fmt.Errorf("%w: amount %q has a malformed fraction", ErrInvalidInput, s)
	}
	if len(frac) > 8 {
		frac = frac[:8]
	}
	frac += strings.Repeat("0", 8-len(frac))

	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, s, err)
	}
	f, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, s, err)
	}
	if w > (math.MaxUint64-f)/OctasPerAPT {
		return 0, fmt.Errorf("%w: amount %q overflows", ErrInvalidInput, s)
	}
	return w*OctasPerAPT + f, nil
}

// FormatOctas renders octas as an APT decimal without trailing zeros.
func FormatOctas(octas uint64) string {
	whole := octas / OctasPerAPT
	frac := octas % OctasPerAPT
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fs := strings.TrimRight(fmt.Sprintf("%08d", frac), "0")
	return strconv.FormatUint(whole, 10) + "." + fs
}
