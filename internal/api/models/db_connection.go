package models

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type DBType string

const (
	DBTypePostgres  DBType = "postgres"
	DBTypePgx       DBType = "pgx"
	DBTypeMySQL     DBType = "mysql"
	DBTypeSQLServer DBType = "sqlserver"
	DBTypeSQLite    DBType = "sqlite"
)

// DBConnectionConfig describes an external database a SQLQuery node may name.
type DBConnectionConfig struct {
	Type     DBType `json:"type" yaml:"type" validate:"required,oneof=postgres pgx mysql sqlserver sqlite"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database" validate:"required"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	SSLMode  string `json:"sslMode" yaml:"sslMode"`
	// ReadOnly connections only accept single SELECT statements.
	ReadOnly bool `json:"readOnly" yaml:"readOnly"`
}

func (slf DBConnectionConfig) GetConnectionID() string {
	return fmt.Sprintf("%s:%s:%d:%s:%s", slf.Type, slf.Host, slf.Port, slf.Database, slf.Username)
}

func (slf DBConnectionConfig) GetDriverName() string {
	switch slf.Type {
	case DBTypeSQLServer:
		return "sqlserver"
	case "", DBTypePostgres:
		return "postgres"
	default:
		return string(slf.Type)
	}
}

func (slf DBConnectionConfig) port(def int) int {
	if slf.Port == 0 {
		return def
	}
	return slf.Port
}

func (slf DBConnectionConfig) BuildConnectionString() string {
	switch slf.Type {
	case DBTypeMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", slf.Username, slf.Password, slf.Host, slf.port(3306), slf.Database)
	case DBTypeSQLServer:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(slf.Username, slf.Password),
			Host:     slf.Host + ":" + strconv.Itoa(slf.port(1433)),
			RawQuery: url.Values{"database": {slf.Database}}.Encode(),
		}
		return u.String()
	case DBTypePgx:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(slf.Username, slf.Password),
			Host:     slf.Host + ":" + strconv.Itoa(slf.port(5432)),
			Path:     "/" + slf.Database,
			RawQuery: url.Values{"sslmode": {slf.sslMode()}}.Encode(),
		}
		return u.String()
	case DBTypeSQLite:
		return slf.Database
	default:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			slf.Host, slf.port(5432), slf.Username, slf.Password, slf.Database, slf.sslMode())
	}
}

func (slf DBConnectionConfig) sslMode() string {
	if slf.SSLMode == "" {
		return "disable"
	}
	return slf.SSLMode
}

// Connections maps the names used by SQLQuery nodes to their configuration.
type Connections map[string]DBConnectionConfig

type connectionsFile struct {
	Connections Connections `yaml:"connections"`
}

// LoadConnections reads a YAML file of the form
//
//	connections:
//	  warehouse:
//	    type: postgres
//	    host: localhost
//	    database: dw
//
// Values may reference environment variables as ${VAR}.
func LoadConnections(path string) (Connections, error) {
	if path == "" {
		return Connections{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read connections file: %w", err)
	}
	var file connectionsFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &file); err != nil {
		return nil, fmt.Errorf("failed to parse connections file %s: %w", path, err)
	}
	if file.Connections == nil {
		file.Connections = Connections{}
	}
	return file.Connections, nil
}
