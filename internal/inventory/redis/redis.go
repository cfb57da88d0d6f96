package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"ms-admission/internal/inventory"
	"ms-admission/internal/models"
)

// allocateScript claims KEYS[1] and increments KEYS[2] in one step.
// Returns the new sold count, -1 if the seat is taken, -2 at capacity.
var allocateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return -1
end
local sold = tonumber(redis.call('GET', KEYS[2]) or '0')
if sold >= tonumber(ARGV[2]) then
	return -2
end
redis.call('SET', KEYS[1], ARGV[1])
return redis.call('INCR', KEYS[2])
`)

var freeScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 1 then
	local sold = tonumber(redis.call('GET', KEYS[2]) or '0')
	if sold > 0 then
		redis.call('DECR', KEYS[2])
	end
	return 1
end
return 0
`)

// Redis keeps seat claims and sold counters in Redis. Seats are never
// expired; a claim lasts until Free.
type Redis struct {
	Client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client}
}

func (r *Redis) Name() string { return "redis" }

func seatKey(seat inventory.Seat) string {
	return fmt.Sprintf("seat:%d:%d:%d", seat.ShowID, seat.SeatTypeID, seat.Num)
}

func soldKey(showID, seatTypeID uint64) string {
	return fmt.Sprintf("sold:%d:%d", showID, seatTypeID)
}

func (r *Redis) Allocate(ctx context.Context, seat inventory.Seat, capacity uint32, holder string) error {
	keys := []string{seatKey(seat), soldKey(seat.ShowID, seat.SeatTypeID)}
	res, err := allocateScript.Run(ctx, r.Client, keys, holder, capacity).Int64()
	if err != nil {
		return fmt.Errorf("failed to allocate seat %s: %w", seat, err)
	}
	switch res {
	case -1:
		return fmt.Errorf("%w: seat %s already taken", models.ErrSeatUnavailable, seat)
	case -2:
		return fmt.Errorf("%w: seat type %d:%d has %d seats", models.ErrCapacityExceeded, seat.ShowID, seat.SeatTypeID, capacity)
	}
	return nil
}

func (r *Redis) Free(ctx context.Context, seat inventory.Seat) error {
	keys := []string{seatKey(seat), soldKey(seat.ShowID, seat.SeatTypeID)}
	return freeScript.Run(ctx, r.Client, keys).Err()
}

func (r *Redis) Sold(ctx context.Context, showID, seatTypeID uint64) (uint32, error) {
	n, err := r.Client.Get(ctx, soldKey(showID, seatTypeID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

