package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sailclub/sailcredit/internal/model"
	"github.com/sailclub/sailcredit/internal/storage"
)

// Storage is a Redis-backed implementation of the ledger store.
//
// Balances live in one ZSET scored by balance, so the leaderboard is a
// single ZREVRANGE. Each user's history is a LIST of JSON entries, newest
// first.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func userMember(userID model.UserID) string {
	return strconv.FormatUint(uint64(userID), 10)
}

func parseUserMember(member string) (model.UserID, error) {
	id, err := strconv.ParseUint(member, 10, 64)
	if err != nil {
		return 0, err
	}
	return model.UserID(id), nil
}

func (s *Storage) GetBalance(ctx context.Context, userID model.UserID) (int, error) {
	score, err := s.client.ZScore(ctx, balancesKey(), userMember(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, model.ErrUserNotFound
		}
		return 0, err
	}
	return int(score), nil
}

func (s *Storage) CreateUserWithDefault(ctx context.Context, userID model.UserID) (int, error) {
	member := userMember(userID)
	if err := s.client.ZAddNX(ctx, balancesKey(), redis.Z{
		Score:  float64(model.StartingBalance),
		Member: member,
	}).Err(); err != nil {
		return 0, err
	}

	// The user may already have existed; return the live balance either way
	score, err := s.client.ZScore(ctx, balancesKey(), member).Result()
	if err != nil {
		return 0, err
	}
	return int(score), nil
}

func (s *Storage) SetBalance(ctx context.Context, userID model.UserID, balance int) error {
	return s.client.ZAdd(ctx, balancesKey(), redis.Z{
		Score:  float64(balance),
		Member: userMember(userID),
	}).Err()
}

func (s *Storage) AppendLogEntryAndSetBalance(ctx context.Context, entry model.CreditLogEntry, newBalance int) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// Transactional pipeline keeps the log append and balance update atomic
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, userLogKey(entry.UserID), data)
	pipe.SAdd(ctx, logIndexKey(), userMember(entry.UserID))
	pipe.ZAdd(ctx, balancesKey(), redis.Z{
		Score:  float64(newBalance),
		Member: userMember(entry.UserID),
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) QueryLog(ctx context.Context, userID model.UserID, since time.Time, excludeAdmin bool) ([]model.CreditLogEntry, error) {
	raw, err := s.client.LRange(ctx, userLogKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var entries []model.CreditLogEntry
	for _, item := range raw {
		var entry model.CreditLogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, err
		}
		if entry.Timestamp.Before(since) {
			continue
		}
		if excludeAdmin && entry.Source == model.SourceAdmin {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Storage) QueryAllLog(ctx context.Context) ([]model.CreditLogEntry, error) {
	members, err := s.client.SMembers(ctx, logIndexKey()).Result()
	if err != nil {
		return nil, err
	}

	var entries []model.CreditLogEntry
	for _, member := range members {
		userID, err := parseUserMember(member)
		if err != nil {
			return nil, err
		}
		userEntries, err := s.QueryLog(ctx, userID, time.Time{}, false)
		if err != nil {
			return nil, err
		}
		entries = append(entries, userEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *Storage) QueryAllBalances(ctx context.Context) ([]model.UserBalance, error) {
	zs, err := s.client.ZRangeWithScores(ctx, balancesKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	balances := make([]model.UserBalance, 0, len(zs))
	for _, z := range zs {
		userID, err := parseUserMember(z.Member.(string))
		if err != nil {
			return nil, err
		}
		balances = append(balances, model.UserBalance{UserID: userID, Balance: int(z.Score)})
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].UserID < balances[j].UserID
	})
	return balances, nil
}

func (s *Storage) QueryLeaderboard(ctx context.Context) ([]model.UserBalance, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, balancesKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	balances := make([]model.UserBalance, 0, len(zs))
	for _, z := range zs {
		userID, err := parseUserMember(z.Member.(string))
		if err != nil {
			return nil, err
		}
		balances = append(balances, model.UserBalance{UserID: userID, Balance: int(z.Score)})
	}
	return balances, nil
}

func (s *Storage) ResetAllBalances(ctx context.Context, balance int) error {
	members, err := s.client.ZRange(ctx, balancesKey(), 0, -1).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, member := range members {
		pipe.ZAdd(ctx, balancesKey(), redis.Z{Score: float64(balance), Member: member})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) WipeLog(ctx context.Context) error {
	members, err := s.client.SMembers(ctx, logIndexKey()).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, member := range members {
		userID, err := parseUserMember(member)
		if err != nil {
			return err
		}
		pipe.Del(ctx, userLogKey(userID))
	}
	pipe.Del(ctx, logIndexKey())
	_, err = pipe.Exec(ctx)
	return err
}
