package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Component field helpers for common component names
func Component(name string) Field {
	return String("component", name)
}

func IndexName(name string) Field {
	return String("index", name)
}

func ReplicaID(id int) Field {
	return Int("replica_id", id)
}

func Version(v int64) Field {
	return Int64("version", v)
}

func PrimaryGen(gen int64) Field {
	return Int64("primary_gen", gen)
}

func Segment(name string) Field {
	return String("segment", name)
}

func Host(h string) Field {
	return String("host", h)
}

func Port(p int) Field {
	return Int("port", p)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}
