package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/netpaca/snmp/walk"
)

// SNMPFetcher implements walk.PageFetcher on top of the ConnectionPool:
// GetNext for SNMPv1, GetBulk (max_repetitions rows per page) otherwise.
type SNMPFetcher struct {
	pool   *ConnectionPool
	name   string
	target Target
	logger *slog.Logger
}

// NewSNMPFetcher returns a fetcher for the named device.
func NewSNMPFetcher(pool *ConnectionPool, name string, t Target, logger *slog.Logger) *SNMPFetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &SNMPFetcher{pool: pool, name: name, target: t, logger: logger}
}

// NextPage implements walk.PageFetcher. A transport error discards the
// session and is returned as is; an agent error-status is attached to the
// page.
func (f *SNMPFetcher) NextPage(ctx context.Context, cursor []string) (walk.Page, error) {
	conn, err := f.pool.Get(ctx, f.name, f.target)
	if err != nil {
		return walk.Page{}, fmt.Errorf("pool get %s: %w", f.name, err)
	}

	var pkt *gosnmp.SnmpPacket
	if f.target.SNMP.Version == "1" {
		pkt, err = conn.GetNext(cursor)
	} else {
		reps := f.target.SNMP.MaxRepetitions
		if reps <= 0 {
			reps = 25
		}
		pkt, err = conn.GetBulk(cursor, 0, uint32(reps))
	}
	if err != nil {
		f.pool.Discard(f.name, conn)
		return walk.Page{}, err
	}
	f.pool.Put(f.name, conn)

	if pkt == nil {
		return walk.Page{}, fmt.Errorf("empty response")
	}
	return pageOf(pkt, cursor), nil
}

func pageOf(pkt *gosnmp.SnmpPacket, cursor []string) walk.Page {
	page := walk.Page{Rows: pkt.Variables}
	if pkt.Error != gosnmp.NoError {
		st := &walk.StatusError{
			Status: fmt.Sprintf("%v", pkt.Error),
			Index:  int(pkt.ErrorIndex),
		}
		if i := int(pkt.ErrorIndex) - 1; i >= 0 && i < len(cursor) {
			st.Key = cursor[i]
		}
		page.Status = st
	}
	return page
}
