package tools

import (
	"context"
	"strings"

	"github.com/litesql/dbmcp/internal/binder"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/pool"
)

type connectInput struct {
	Connection string `json:"connection_name,omitempty" jsonschema:"name of the connection to open or replace (default: default)"`
	Driver     string `json:"driver,omitempty" jsonschema:"postgres, mysql, sqlite, sqlserver or oracle"`
	Host       string `json:"host,omitempty" jsonschema:"database host"`
	Port       int    `json:"port,omitempty" jsonschema:"database port (0 uses the driver default)"`
	Database   string `json:"database,omitempty" jsonschema:"database name, service name for oracle or file path for sqlite"`
	User       string `json:"user,omitempty" jsonschema:"database user"`
	Password   string `json:"password,omitempty" jsonschema:"database password"`
	SSLMode    string `json:"sslmode,omitempty" jsonschema:"TLS mode passed to the driver"`
	PoolMin    *int   `json:"pool_min,omitempty" jsonschema:"minimum number of pooled connections"`
	PoolMax    int    `json:"pool_max,omitempty" jsonschema:"maximum number of pooled connections"`
}

func (in *connectInput) validate() error {
	if in.Connection != "" {
		return binder.ValidateIdent("connection_name", in.Connection)
	}
	return nil
}

type connectionInfo struct {
	Name   string    `json:"connection_name"`
	Driver string    `json:"driver"`
	Target string    `json:"target"`
	Pool   pool.Stat `json:"pool"`
}

func describeConnection(m *pool.Manager) connectionInfo {
	return connectionInfo{
		Name:   m.Name(),
		Driver: m.Dialect().Name(),
		Target: m.Profile().String(),
		Pool:   m.Stat(),
	}
}

func (e *Env) connect(ctx context.Context, in *connectInput) (any, error) {
	p := e.pools.Defaults()
	if in.Driver != "" {
		driver := strings.ToLower(in.Driver)
		if driver != p.Driver {
			p.Port = 0
		}
		p.Driver = driver
	}
	if in.Host != "" {
		p.Host = in.Host
	}
	if in.Port != 0 {
		p.Port = in.Port
	}
	if in.Database != "" {
		p.Database = in.Database
	}
	if in.User != "" {
		p.User = in.User
		p.Password = ""
	}
	if in.Password != "" {
		p.Password = in.Password
	}
	if in.SSLMode != "" {
		p.SSLMode = in.SSLMode
	}
	if in.PoolMin != nil {
		p.MinConns = *in.PoolMin
	}
	if in.PoolMax != 0 {
		p.MaxConns = in.PoolMax
	}
	if p.MinConns > p.MaxConns && in.PoolMin == nil {
		p.MinConns = p.MaxConns
	}
	m, err := e.pools.Open(ctx, in.Connection, p)
	if err != nil {
		return nil, err
	}
	return describeConnection(m), nil
}

type disconnectInput struct {
	Connection string `json:"connection_name,omitempty" jsonschema:"name of the connection to close (default: default)"`
}

func (e *Env) disconnect(ctx context.Context, in *disconnectInput) (any, error) {
	name := in.Connection
	if name == "" {
		name = pool.DefaultName
	}
	if err := e.pools.Remove(ctx, name); err != nil {
		if dberr.KindOf(err) == dberr.InvalidArgument {
			return nil, err
		}
		return nil, dberr.Wrap(dberr.InternalError, "disconnect", err)
	}
	return map[string]any{"connection_name": name, "disconnected": true}, nil
}

type listConnectionsInput struct{}

func (e *Env) listConnections(ctx context.Context, in *listConnectionsInput) (any, error) {
	list := make([]connectionInfo, 0)
	for _, m := range e.pools.All() {
		list = append(list, describeConnection(m))
	}
	return map[string]any{"connections": list}, nil
}

type healthCheckInput struct {
	Connection string `json:"connection_name,omitempty" jsonschema:"name of the connection to check (default: default)"`
}

func (e *Env) healthCheck(ctx context.Context, in *healthCheckInput) (any, error) {
	return e.health.Check(ctx, in.Connection)
}
