package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Подставляются при сборке: -ldflags "-X github.com/vladislavdragonenkov/storefront/internal/version.version=v1.2.3".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает собранный бинарник.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func Get() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

func (b Build) String() string {
	return fmt.Sprintf("storefront %s (%s, %s)", b.Version, b.Commit, b.Date)
}

// Fields для стартовой записи в лог.
func (b Build) Fields() log.Fields {
	return log.Fields{"version": b.Version, "commit": b.Commit, "build_date": b.Date}
}
