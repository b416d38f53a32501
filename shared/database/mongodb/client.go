package mongodb

import (
	"context"
	"fmt"
	"sync"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Client is a MongoDB client for the legacy source database
type Client struct {
	config         *Config
	client         *mongo.Client
	database       *mongo.Database
	logger         *zap.Logger
	circuitBreaker *gobreaker.CircuitBreaker
	mu             sync.RWMutex
	closed         bool
}

// NewClient connects to MongoDB and verifies the connection
func NewClient(ctx context.Context, config *Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientOpts := options.Client().ApplyURI(config.URI)

	clientOpts.SetMaxPoolSize(config.MaxPoolSize)
	clientOpts.SetMinPoolSize(config.MinPoolSize)
	clientOpts.SetMaxConnIdleTime(config.MaxConnIdleTime)

	clientOpts.SetConnectTimeout(config.ConnectTimeout)
	clientOpts.SetServerSelectionTimeout(config.ServerSelectionTimeout)
	clientOpts.SetSocketTimeout(config.SocketTimeout)

	readPref := parseReadPreference(config.ReadPreference)
	clientOpts.SetReadPreference(readPref)
	clientOpts.SetReadConcern(parseReadConcern(config.ReadConcern))

	connectCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	mongoClient, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(connectCtx, readPref); err != nil {
		_ = mongoClient.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	client := &Client{
		config:   config,
		client:   mongoClient,
		database: mongoClient.Database(config.Database),
		logger:   logger,
	}

	client.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mongodb-source",
		MaxRequests: config.CircuitBreaker.MaxRequests,
		Interval:    config.CircuitBreaker.Interval,
		Timeout:     config.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.CircuitBreaker.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || err == mongo.ErrNoDocuments
		},
	})

	logger.Info("MongoDB client initialized successfully",
		zap.String("database", config.Database),
		zap.String("read_preference", config.ReadPreference))

	return client, nil
}

// Database returns the source database handle
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Collection returns a handle to the named collection
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Execute runs fn through the source circuit breaker
func (c *Client) Execute(fn func() error) error {
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// Health checks the health of the MongoDB connection
func (c *Client) Health(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("mongodb client is closed")
	}
	return c.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB client: %w", err)
	}

	c.logger.Info("MongoDB client closed")
	return nil
}

func parseReadPreference(pref string) *readpref.ReadPref {
	switch pref {
	case "primary":
		return readpref.Primary()
	case "secondary":
		return readpref.Secondary()
	case "secondaryPreferred":
		return readpref.SecondaryPreferred()
	case "nearest":
		return readpref.Nearest()
	default:
		return readpref.PrimaryPreferred()
	}
}

func parseReadConcern(concern string) *readconcern.ReadConcern {
	switch concern {
	case "local":
		return readconcern.Local()
	case "available":
		return readconcern.Available()
	case "linearizable":
		return readconcern.Linearizable()
	case "snapshot":
		return readconcern.Snapshot()
	default:
		return readconcern.Majority()
	}
}
