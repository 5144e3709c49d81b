// Copyright 2025 bidrec Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/auctionlab/bidrec/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	ErrUserNotExist = errors.NotFoundf("user")
	ErrItemNotExist = errors.NotFoundf("item")
	ErrNoDatabase   = errors.NotAssignedf("database")
)

// User stores meta data about a bidder.
type User struct {
	UserId int64 `gorm:"column:user_id;primaryKey" json:"UserId"`
}

// Item stores meta data about an auction lot.
type Item struct {
	ItemId    int64     `gorm:"column:item_id;primaryKey" json:"ItemId"`
	StartTime time.Time `gorm:"column:start_time" json:"StartTime"`
	EndTime   time.Time `gorm:"column:end_time" json:"EndTime"`
}

// IsActiveAt reports whether the auction accepts bids at the given
// instant. The window is inclusive of the start and exclusive of the
// end.
func (item *Item) IsActiveAt(now time.Time) bool {
	return !now.Before(item.StartTime) && now.Before(item.EndTime)
}

// Bid stores a single bid on an item.
type Bid struct {
	BidderId  int64     `gorm:"column:bidder_id;index" json:"BidderId"`
	ItemId    int64     `gorm:"column:item_id;index" json:"ItemId"`
	Amount    float64   `gorm:"column:amount" json:"Amount"`
	CreatedAt time.Time `gorm:"column:created_at" json:"CreatedAt"`
}

// View stores a single item page view.
type View struct {
	UserId   int64     `gorm:"column:user_id;index" json:"UserId"`
	ItemId   int64     `gorm:"column:item_id;index" json:"ItemId"`
	ViewedAt time.Time `gorm:"column:viewed_at" json:"ViewedAt"`
}

// AggregatedCount is one (user, item) interaction count aggregated from
// the bids or views table.
type AggregatedCount struct {
	UserId int64 `gorm:"column:user_id"`
	ItemId int64 `gorm:"column:item_id"`
	Count  int   `gorm:"column:count"`
}

type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error
	BatchInsertUsers(ctx context.Context, users []User) error
	BatchInsertItems(ctx context.Context, items []Item) error
	InsertBid(ctx context.Context, bid Bid) error
	InsertView(ctx context.Context, view View) error
	GetUsers(ctx context.Context) ([]User, error)
	GetItems(ctx context.Context) ([]Item, error)
	GetBidCounts(ctx context.Context) ([]AggregatedCount, error)
	GetViewCounts(ctx context.Context) ([]AggregatedCount, error)
}

// Open a connection to a database.
func Open(path, tablePrefix string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		// probe isolation variable name
		isolationVarName, err := storage.ProbeMySQLIsolationVariableName(name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		// append parameters
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"sql_mode":       "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			isolationVarName: "'READ-UNCOMMITTED'",
			"parseTime":      "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		database := new(SQLDatabase)
		database.driver = MySQL
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = sql.Open("mysql", name); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = sql.Open("postgres", path); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		// append parameters
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		name := path[len(storage.SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if database.client, err = sql.Open("sqlite", name); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}
