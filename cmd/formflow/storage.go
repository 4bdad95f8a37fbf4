package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	storageeng "github.com/formflow/formflow/engine/storage"
	storageengdiskv "github.com/formflow/formflow/engine/storage/diskv"
	storageenginmem "github.com/formflow/formflow/engine/storage/inmem"
	storageengmysql "github.com/formflow/formflow/engine/storage/mysql"
	storageengredis "github.com/formflow/formflow/engine/storage/redis"
	storageschema "github.com/formflow/formflow/subsystem/schema/storage"
	storageschemadiskv "github.com/formflow/formflow/subsystem/schema/storage/diskv"
	storageschemainmem "github.com/formflow/formflow/subsystem/schema/storage/inmem"
	storageschemamysql "github.com/formflow/formflow/subsystem/schema/storage/mysql"
	storageschemaredis "github.com/formflow/formflow/subsystem/schema/storage/redis"
	"github.com/formflow/formflow/subsystem/schema/storage/yamldir"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
)

var errNoDSN = errors.New("data source name required")

type storageConfig struct {
	engine storageeng.AllStorage

	// schema is always set. it is also a storageschema.Storage
	// unless the backend is read-only.
	schema storageschema.ReadStorage

	// yaml is set for the yaml directory backend to enable watching.
	yaml *yamldir.YAMLDir
}

// writableSchema returns the schema storage if it supports writes.
func (s *storageConfig) writableSchema() (storageschema.Storage, bool) {
	w, ok := s.schema.(storageschema.Storage)
	return w, ok
}

// redisClient creates a Redis client from a redis:// URL.
func redisClient(ctx context.Context, dsn string) (*redis.Client, error) {
	if dsn == "" {
		dsn = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func parseEngineStorage(ctx context.Context, name, dsn string) (storageeng.AllStorage, error) {
	switch name {
	case "inmem":
		return storageenginmem.New(), nil
	case "file", "diskv":
		if dsn == "" {
			dsn = "db"
		}
		return storageengdiskv.New(dsn), nil
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("mysql: %w", errNoDSN)
		}
		return storageengmysql.New(storageengmysql.WithDSN(dsn))
	case "redis":
		client, err := redisClient(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return storageengredis.New(ctx, storageengredis.WithClient(client))
	}
	return nil, fmt.Errorf("unknown storage: %s", name)
}

func parseSchemaStorage(ctx context.Context, name, dsn string) (storageschema.ReadStorage, *yamldir.YAMLDir, error) {
	switch name {
	case "inmem":
		return storageschemainmem.New(), nil, nil
	case "file", "diskv":
		if dsn == "" {
			dsn = filepath.Join("db", "schema")
		}
		return storageschemadiskv.New(dsn), nil, nil
	case "yaml":
		if dsn == "" {
			return nil, nil, fmt.Errorf("yaml: %w", errNoDSN)
		}
		y, err := yamldir.New(dsn)
		return y, y, err
	case "mysql":
		if dsn == "" {
			return nil, nil, fmt.Errorf("mysql: %w", errNoDSN)
		}
		s, err := storageschemamysql.New(storageschemamysql.WithDSN(dsn))
		return s, nil, err
	case "redis":
		client, err := redisClient(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return storageschemaredis.New(client, storageschemaredis.DefaultPrefix), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown schema storage: %s", name)
}

func parseStorage(ctx context.Context, engName, engDSN, schemaName, schemaDSN string) (*storageConfig, error) {
	eng, err := parseEngineStorage(ctx, engName, engDSN)
	if err != nil {
		return nil, fmt.Errorf("engine storage: %w", err)
	}
	schema, y, err := parseSchemaStorage(ctx, schemaName, schemaDSN)
	if err != nil {
		return nil, fmt.Errorf("schema storage: %w", err)
	}
	return &storageConfig{engine: eng, schema: schema, yaml: y}, nil
}
