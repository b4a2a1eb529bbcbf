package solver

import (
	"log/slog"
	"reflect"
)

// Code classifies a solver call. Zero means success; each failure class has
// its own nonzero value.
type Code int

const (
	OK Code = iota
	AllocationFailure
	FlagFailure
	MemoryFailure
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case AllocationFailure:
		return "allocation_failure"
	case FlagFailure:
		return "flag_failure"
	case MemoryFailure:
		return "memory_failure"
	}
	return "unknown"
}

// Convention selects how a return value is checked. Generated C++ passes it
// to a single helper; Go callers use the named Check functions.
type Convention int

const (
	ConventionAllocation        Convention = 0
	ConventionStatusFlag        Convention = 1
	ConventionAllocationVerbose Convention = 2
)

// CheckAllocation fails iff handle is nil or empty.
func CheckAllocation(handle any) Code {
	if isEmpty(handle) {
		return AllocationFailure
	}
	return OK
}

// CheckStatusFlag fails iff flag is negative.
func CheckStatusFlag(flag int) Code {
	if flag < 0 {
		return FlagFailure
	}
	return OK
}

// CheckAllocationVerbose is CheckAllocation that also reports the failing
// function on log.
func CheckAllocationVerbose(handle any, function string, log *slog.Logger) Code {
	if !isEmpty(handle) {
		return OK
	}
	if log != nil {
		log.Error("solver allocation returned no memory", "function", function)
	}
	return MemoryFailure
}

// Classify applies the convention named by opt. flag is only read by
// ConventionStatusFlag and handle only by the allocation conventions.
func Classify(opt Convention, handle any, flag int, function string, log *slog.Logger) Code {
	switch opt {
	case ConventionAllocation:
		return CheckAllocation(handle)
	case ConventionStatusFlag:
		return CheckStatusFlag(flag)
	case ConventionAllocationVerbose:
		return CheckAllocationVerbose(handle, function, log)
	}
	return FlagFailure
}

// isEmpty reports nil interfaces, typed nil references and empty
// collections.
func isEmpty(handle any) bool {
	if handle == nil {
		return true
	}
	v := reflect.ValueOf(handle)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return v.IsNil()
	case reflect.Map, reflect.Slice:
		return v.IsNil() || v.Len() == 0
	case reflect.String, reflect.Array:
		return v.Len() == 0
	}
	return false
}
