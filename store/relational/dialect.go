// Copyright 2023 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package relational

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/streamnative/sequence/common"
)

// Dialect selects the SQL flavor and the database/sql driver.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case MySQL, Postgres, SQLite:
		return d, nil
	case "postgresql", "pgx":
		return Postgres, nil
	}
	return "", errors.Wrapf(common.ErrInvalidConfiguration, "unsupported sql dialect %q", s)
}

func (d Dialect) validate() error {
	switch d {
	case MySQL, Postgres, SQLite:
		return nil
	}
	return errors.Wrapf(common.ErrInvalidConfiguration, "unsupported sql dialect %q", string(d))
}

func (d Dialect) driverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case SQLite:
		return "sqlite"
	default:
		return "mysql"
	}
}

type queries struct {
	createTable string
	selectValue string
	insertValue string
	updateValue string
}

func (d Dialect) queries(table string) queries {
	switch d {
	case Postgres:
		return queries{
			createTable: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
	id BIGSERIAL PRIMARY KEY,
	name VARCHAR(64) NOT NULL UNIQUE,
	value BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	modified_at TIMESTAMP NOT NULL
)`, table),
			selectValue: fmt.Sprintf(`SELECT value FROM "%s" WHERE name = $1`, table),
			insertValue: fmt.Sprintf(`INSERT INTO "%s" (name, value, created_at, modified_at) VALUES ($1, $2, $3, $4) ON CONFLICT (name) DO NOTHING`, table),
			updateValue: fmt.Sprintf(`UPDATE "%s" SET value = $1, modified_at = $2 WHERE name = $3 AND value = $4`, table),
		}
	case SQLite:
		return queries{
			createTable: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	value INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL,
	modified_at TIMESTAMP NOT NULL
)`, table),
			selectValue: fmt.Sprintf(`SELECT value FROM "%s" WHERE name = ?`, table),
			insertValue: fmt.Sprintf(`INSERT OR IGNORE INTO "%s" (name, value, created_at, modified_at) VALUES (?, ?, ?, ?)`, table),
			updateValue: fmt.Sprintf(`UPDATE "%s" SET value = ?, modified_at = ? WHERE name = ? AND value = ?`, table),
		}
	default:
		return queries{
			createTable: fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
				"id BIGINT NOT NULL AUTO_INCREMENT, "+
				"name VARCHAR(64) NOT NULL, "+
				"value BIGINT NOT NULL, "+
				"created_at DATETIME NOT NULL, "+
				"modified_at DATETIME NOT NULL, "+
				"PRIMARY KEY (id), UNIQUE KEY uk_name (name))", table),
			selectValue: fmt.Sprintf("SELECT value FROM `%s` WHERE name = ?", table),
			insertValue: fmt.Sprintf("INSERT IGNORE INTO `%s` (name, value, created_at, modified_at) VALUES (?, ?, ?, ?)", table),
			updateValue: fmt.Sprintf("UPDATE `%s` SET value = ?, modified_at = ? WHERE name = ? AND value = ?", table),
		}
	}
}
