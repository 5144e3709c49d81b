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

	_ "github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"

	"github.com/auctionlab/bidrec/storage"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// SQLDatabase uses a relational database as data storage.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init tables and indices in the database.
func (d *SQLDatabase) Init() error {
	if d.driver == MySQL {
		d.gormDB = d.gormDB.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	err := d.gormDB.Table(d.UsersTable()).AutoMigrate(User{})
	if err != nil {
		return errors.Trace(err)
	}
	err = d.gormDB.Table(d.ItemsTable()).AutoMigrate(Item{})
	if err != nil {
		return errors.Trace(err)
	}
	err = d.gormDB.Table(d.BidsTable()).AutoMigrate(Bid{})
	if err != nil {
		return errors.Trace(err)
	}
	err = d.gormDB.Table(d.ViewsTable()).AutoMigrate(View{})
	if err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

// Close the database connection.
func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge all data in the database.
func (d *SQLDatabase) Purge() error {
	tables := []string{d.UsersTable(), d.ItemsTable(), d.BidsTable(), d.ViewsTable()}
	for _, tableName := range tables {
		err := d.gormDB.Exec("DELETE FROM " + tableName).Error
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertUsers inserts a batch of users into the database.
func (d *SQLDatabase) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(users).Error
	return errors.Trace(err)
}

// BatchInsertItems inserts a batch of items into the database.
func (d *SQLDatabase) BatchInsertItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	err := d.gormDB.WithContext(ctx).Table(d.ItemsTable()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			UpdateAll: true,
		}).
		Create(items).Error
	return errors.Trace(err)
}

// InsertBid appends a bid to the bids table.
func (d *SQLDatabase) InsertBid(ctx context.Context, bid Bid) error {
	err := d.gormDB.WithContext(ctx).Table(d.BidsTable()).Create(&bid).Error
	return errors.Trace(err)
}

// InsertView appends a page view to the views table.
func (d *SQLDatabase) InsertView(ctx context.Context, view View) error {
	err := d.gormDB.WithContext(ctx).Table(d.ViewsTable()).Create(&view).Error
	return errors.Trace(err)
}

// GetUsers returns all users in the database.
func (d *SQLDatabase) GetUsers(ctx context.Context) ([]User, error) {
	users := make([]User, 0)
	err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Select("user_id").
		Order("user_id").
		Find(&users).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	return users, nil
}

// GetItems returns all items in the database.
func (d *SQLDatabase) GetItems(ctx context.Context) ([]Item, error) {
	items := make([]Item, 0)
	err := d.gormDB.WithContext(ctx).Table(d.ItemsTable()).
		Select("item_id, start_time, end_time").
		Order("item_id").
		Find(&items).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	return items, nil
}

// GetBidCounts aggregates the bids table into per (user, item) counts.
func (d *SQLDatabase) GetBidCounts(ctx context.Context) ([]AggregatedCount, error) {
	counts := make([]AggregatedCount, 0)
	err := d.gormDB.WithContext(ctx).Table(d.BidsTable()).
		Select("bidder_id AS user_id, item_id, COUNT(*) AS count").
		Group("bidder_id, item_id").
		Find(&counts).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	return counts, nil
}

// GetViewCounts aggregates the views table into per (user, item) counts.
func (d *SQLDatabase) GetViewCounts(ctx context.Context) ([]AggregatedCount, error) {
	counts := make([]AggregatedCount, 0)
	err := d.gormDB.WithContext(ctx).Table(d.ViewsTable()).
		Select("user_id, item_id, COUNT(*) AS count").
		Group("user_id, item_id").
		Find(&counts).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	return counts, nil
}
