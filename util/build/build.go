// Package build carries version information stamped in at link time:
//
//	go build -ldflags "-X github.com/pftrace/pftrace/util/build.VERSION=$(git rev-parse HEAD)"
package build

import "github.com/sirupsen/logrus"

const defaultValue = "dirty"

var (
	BUILD_DATE = defaultValue
	VERSION    = defaultValue
)

// Fields returns the build stamp as structured log fields.
func Fields() logrus.Fields {
	return logrus.Fields{
		"version":    VERSION,
		"build_date": BUILD_DATE,
	}
}
