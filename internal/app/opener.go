package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/baker-beach/market-index/internal/engine"
	"github.com/baker-beach/market-index/internal/engine/bleve"
	esengine "github.com/baker-beach/market-index/internal/engine/elasticsearch"
	"github.com/baker-beach/market-index/internal/engine/memory"
)

// Address schemes understood by OpenEngine.
const (
	SchemeMemory = "memory"
	SchemeBleve  = "bleve"
)

// target is a parsed index address.
type target struct {
	scheme string
	// base is the cluster URL for Elasticsearch addresses.
	base string
	// name is the index name, bleve path or memory index name.
	name string
}

// parseAddress splits an index address:
//
//	http://es:9200/products_live  -> Elasticsearch index products_live
//	bleve:///var/lib/index/live   -> bleve index at /var/lib/index/live
//	bleve://data/live             -> bleve index at data/live
//	memory://live                 -> in-memory index "live"
func parseAddress(address string) (target, error) {
	u, err := url.Parse(address)
	if err != nil {
		return target{}, fmt.Errorf("parse index address %q: %w", address, err)
	}

	switch scheme := strings.ToLower(u.Scheme); scheme {
	case "http", "https":
		if u.Host == "" {
			return target{}, fmt.Errorf("index address %q has no host", address)
		}
		base := url.URL{Scheme: scheme, User: u.User, Host: u.Host}
		return target{scheme: scheme, base: base.String(), name: strings.Trim(u.Path, "/")}, nil
	case SchemeBleve:
		return target{scheme: scheme, name: u.Host + u.Path}, nil
	case SchemeMemory:
		return target{scheme: scheme, name: u.Host + strings.TrimSuffix(u.Path, "/")}, nil
	default:
		return target{}, fmt.Errorf("unsupported index address scheme %q in %q", u.Scheme, address)
	}
}

// OpenEngine returns an engine.Opener choosing the backend by address scheme.
func OpenEngine(logger *slog.Logger) engine.Opener {
	return func(_ context.Context, address string) (engine.Engine, error) {
		t, err := parseAddress(address)
		if err != nil {
			return nil, err
		}

		switch t.scheme {
		case SchemeMemory:
			logger.Info("in-memory index opened", slog.String("name", t.name))
			return memory.New(t.name), nil
		case SchemeBleve:
			e, err := bleve.Open(t.name, logger)
			if err != nil {
				return nil, err
			}
			logger.Info("bleve index opened", slog.String("path", t.name))
			return e, nil
		default:
			e, err := esengine.New(t.base, t.name, logger)
			if err != nil {
				return nil, fmt.Errorf("init elasticsearch engine: %w", err)
			}
			logger.Info("elasticsearch index opened",
				slog.String("url", t.base),
				slog.String("index", e.IndexName()),
			)
			return e, nil
		}
	}
}

// distinctAddresses returns the addresses of m without duplicates, in a
// stable order.
func distinctAddresses(m map[string]string) []string {
	seen := make(map[string]struct{}, len(m))
	var out []string
	for _, addr := range m {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	slices.Sort(out)
	return out
}
