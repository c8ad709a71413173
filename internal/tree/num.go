package tree

import "strconv"

func formatInt(v int64) string     { return strconv.FormatInt(v, 10) }
func formatUint(v uint64) string   { return strconv.FormatUint(v, 10) }
func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
