package events

import "strconv"

func strconvUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func strconvInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
