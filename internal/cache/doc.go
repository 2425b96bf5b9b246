// Package cache stores voice catalogs on disk so online providers can
// report voices without a round trip on every start.
package cache
