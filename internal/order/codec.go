package order

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrForeignOrder   = errors.New("order id has a foreign prefix")
	ErrMalformedOrder = errors.New("order id is malformed")
)

var telegramIDMarker = regexp.MustCompile(`(?i)telegram\s*id\s*:\s*(\d+)`)

// Order is the identity embedded in "{prefix}_{telegramId}_{unixMillis}_{packageId}".
type Order struct {
	ID         string
	TelegramID int64
	PackageID  string
	Timestamp  time.Time
}

type Codec struct {
	prefix  string
	pattern *regexp.Regexp
}

func NewCodec(prefix string) *Codec {
	return &Codec{
		prefix:  prefix,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)_(\d+)_(.+)$`),
	}
}

func (c *Codec) Prefix() string {
	return c.prefix
}

func (c *Codec) Encode(telegramID int64, createdAt time.Time, packageID string) string {
	return fmt.Sprintf("%s_%d_%d_%s", c.prefix, telegramID, createdAt.UnixMilli(), packageID)
}

// Owns reports whether id belongs to this application at all.
func (c *Codec) Owns(id string) bool {
	return strings.HasPrefix(id, c.prefix+"_")
}

// Decode parses an order id. Ids without our prefix yield ErrForeignOrder;
// ids with our prefix but not the positional shape yield ErrMalformedOrder.
func (c *Codec) Decode(id string) (Order, error) {
	if !c.Owns(id) {
		return Order{}, ErrForeignOrder
	}

	m := c.pattern.FindStringSubmatch(id)
	if m == nil {
		return Order{}, fmt.Errorf("%w: %q", ErrMalformedOrder, id)
	}

	telegramID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Order{}, fmt.Errorf("%w: telegram id: %v", ErrMalformedOrder, err)
	}
	millis, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Order{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedOrder, err)
	}

	return Order{
		ID:         id,
		TelegramID: telegramID,
		PackageID:  m[3],
		Timestamp:  time.UnixMilli(millis).UTC(),
	}, nil
}

// TelegramIDFromExtra scans free text such as "Telegram ID: 643763835".
func TelegramIDFromExtra(text string) (int64, bool) {
	m := telegramIDMarker.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
