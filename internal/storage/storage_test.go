package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/bridge-bot/internal/models"
)

type storeFactory func(t *testing.T) Storage

func engines(t *testing.T) map[string]storeFactory {
	t.Helper()
	factories := map[string]storeFactory{
		"memory": func(t *testing.T) Storage {
			return NewMemoryStorage()
		},
		"sqlite": func(t *testing.T) Storage {
			s, err := NewSQLiteStorage(context.Background(), filepath.Join(t.TempDir(), "data.db"), zaptest.NewLogger(t))
			require.NoError(t, err)
			return s
		},
	}
	if redisURL := os.Getenv("TEST_REDIS_URL"); redisURL != "" {
		factories["redis"] = func(t *testing.T) Storage {
			s, err := NewRedisStorage(context.Background(), redisURL, zaptest.NewLogger(t))
			require.NoError(t, err)
			return s
		}
	}
	if dbURL := os.Getenv("TEST_DATABASE_URL"); dbURL != "" {
		factories["postgres"] = func(t *testing.T) Storage {
			cfg, err := parseTestDatabaseURL(dbURL)
			require.NoError(t, err)
			s, err := NewPostgresStorage(cfg, zaptest.NewLogger(t))
			require.NoError(t, err)
			return s
		}
	}
	return factories
}

// uniqueKey keeps runs against shared networked engines independent.
func uniqueKey(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), os.Getpid())
}

func TestGetMissingMapping(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			m, err := s.GetMapping(context.Background(), "chan", uniqueKey(t))
			require.NoError(t, err)
			assert.Nil(t, m)
		})
	}
}

func TestSaveMappingIsInsertIfAbsent(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()
			src := uniqueKey(t)

			first, err := s.SaveMapping(ctx, "chan", src, "C1", "1700000000.000100")
			require.NoError(t, err)
			require.NotNil(t, first)
			assert.Equal(t, "chan", first.SourceChannelID)
			assert.Equal(t, src, first.SourceID)
			assert.Equal(t, "C1", first.DestChannelID)
			assert.Equal(t, "1700000000.000100", first.DestThreadRef)
			assert.False(t, first.CreatedAt.IsZero())

			second, err := s.SaveMapping(ctx, "chan", src, "C2", "1800000000.000200")
			require.NoError(t, err)
			assert.Equal(t, "C1", second.DestChannelID)
			assert.Equal(t, "1700000000.000100", second.DestThreadRef)
			assert.Equal(t, first.ID, second.ID)

			got, err := s.GetMapping(ctx, "chan", src)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "1700000000.000100", got.DestThreadRef)
		})
	}
}

func TestSaveMappingKeysAreIndependent(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()
			src := uniqueKey(t)

			_, err := s.SaveMapping(ctx, "chan-a", src, "C1", "1.1")
			require.NoError(t, err)
			_, err = s.SaveMapping(ctx, "chan-b", src, "C1", "2.2")
			require.NoError(t, err)

			a, err := s.GetMapping(ctx, "chan-a", src)
			require.NoError(t, err)
			b, err := s.GetMapping(ctx, "chan-b", src)
			require.NoError(t, err)
			assert.Equal(t, "1.1", a.DestThreadRef)
			assert.Equal(t, "2.2", b.DestThreadRef)
		})
	}
}

func TestConcurrentSaveMappingKeepsOneRow(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()
			src := uniqueKey(t)

			const callers = 8
			results := make([]*models.ThreadMapping, callers)
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					m, err := s.SaveMapping(ctx, "chan", src, "C1", fmt.Sprintf("ts-%d", i))
					assert.NoError(t, err)
					results[i] = m
				}(i)
			}
			wg.Wait()

			stored, err := s.GetMapping(ctx, "chan", src)
			require.NoError(t, err)
			require.NotNil(t, stored)
			for _, m := range results {
				require.NotNil(t, m)
				assert.Equal(t, stored.DestThreadRef, m.DestThreadRef)
			}
		})
	}
}

func TestSQLiteSchemaInitIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.db")
	ctx := context.Background()

	s, err := NewSQLiteStorage(ctx, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = s.SaveMapping(ctx, "chan", "msg", "C1", "1.1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(ctx, path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	m, err := reopened.GetMapping(ctx, "chan", "msg")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "1.1", m.DestThreadRef)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), DatabaseConfig{Driver: "cassandra"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(context.Background(), DatabaseConfig{Driver: "memory"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)
}

func parseTestDatabaseURL(raw string) (DatabaseConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return DatabaseConfig{}, err
	}
	password, _ := u.User.Password()
	port := 5432
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return DatabaseConfig{}, err
		}
	}
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}
	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}
