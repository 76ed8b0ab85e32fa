package ticket

import (
	"fmt"
	"strings"
	"time"
)

// timeFormat is the display format for ticket times.
const timeFormat = "2006-01-02 15:04:05"

// ViewOptions configures cache viewing.
type ViewOptions struct {
	ShowConfig bool // Include cache configuration pseudo-entries
}

// CacheView contains a parsed summary of a credential cache.
type CacheView struct {
	DefaultPrincipal string
	Entries          []EntryView
}

// EntryView summarizes a single cached credential.
type EntryView struct {
	Client    string
	Server    string
	AuthTime  time.Time
	StartTime time.Time
	EndTime   time.Time
	RenewTill time.Time
	EType     uint16
	Expired   bool
	Config    bool
}

// ViewCache summarizes a cache for display.
func ViewCache(cc *CCache, opts ViewOptions) *CacheView {
	view := &CacheView{
		DefaultPrincipal: cc.DefaultPrinc.String(),
	}

	now := time.Now()
	for i := range cc.Credentials {
		c := &cc.Credentials[i]
		if c.IsConfigEntry() && !opts.ShowConfig {
			continue
		}
		view.Entries = append(view.Entries, EntryView{
			Client:    c.Client.String(),
			Server:    c.Server.String(),
			AuthTime:  time.Unix(int64(c.AuthTime), 0),
			StartTime: time.Unix(int64(c.StartTime), 0),
			EndTime:   time.Unix(int64(c.EndTime), 0),
			RenewTill: time.Unix(int64(c.RenewTill), 0),
			EType:     c.Key.KeyType,
			Expired:   c.Expired(now),
			Config:    c.IsConfigEntry(),
		})
	}

	return view
}

// String renders the view in klist-style layout.
func (v *CacheView) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Default principal: %s\n\n", v.DefaultPrincipal)

	if len(v.Entries) == 0 {
		b.WriteString("No credentials cached.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-21s  %-21s  %s\n", "Valid starting", "Expires", "Service principal")
	for _, e := range v.Entries {
		expires := e.EndTime.Format(timeFormat)
		if e.Expired {
			expires += " (expired)"
		}
		fmt.Fprintf(&b, "%-21s  %-21s  %s\n", e.StartTime.Format(timeFormat), expires, e.Server)
	}

	return b.String()
}
