// Package aggregate reduces raw body-composition measurements to weekly
// averages.
//
// The reduction is two independent passes: records are first grouped by
// calendar date and averaged per metric, then the daily averages are grouped
// by ISO 8601 week and averaged again. Averaging daily averages (rather than
// raw records) gives every day equal weight regardless of how many
// measurements were taken that day.
//
// The package also provides ISO week string parsing ("YYYYWww" or the short
// "ww" form) and week range resolution used by the fetch CLI.
//
// All functions are pure and perform no I/O.
package aggregate
