package solver

import (
	"strconv"
	"strings"
)

const glueSource = `class SolverFailure : public std::exception {
 public:
  SolverFailure(const std::string& model, int status)
      : msg_("In model " + model + ", the solver returned with exit status " +
             std::to_string(status) + ".") {}
  const char* what() const noexcept override { return msg_.c_str(); }

 private:
  std::string msg_;
};

inline int check_allocation(const void* handle) {
  return handle == nullptr ? $ALLOC : 0;
}

inline int check_status_flag(int flag) {
  return flag < 0 ? $FLAG : 0;
}

inline int check_allocation_verbose(const void* handle, const char* function) {
  if (handle == nullptr) {
    std::cerr << "MEMORY_ERROR: " << function << "() failed - returned NULL pointer" << std::endl;
    return $MEMORY;
  }
  return 0;
}

inline int check_flag(const void* value, const char* function, int opt) {
  switch (opt) {
    case $CONV_ALLOC:
      return check_allocation(value);
    case $CONV_FLAG:
      return check_status_flag(*static_cast<const int*>(value));
    case $CONV_VERBOSE:
      return check_allocation_verbose(value, function);
  }
  return $FLAG;
}

inline void escalate(int status) {
  if (status < 0) throw SolverFailure("$MODEL", status);
}

int $MODEL_residual(double t, N_Vector y, N_Vector yp, N_Vector f, void* node) {
  std::vector<double> y1($N);
  const int status = $MODEL_dynamics(t, NV_DATA_S(y), y1.data(), node);
  const double* ypd = NV_DATA_S(yp);
  double* fd = NV_DATA_S(f);
  for (int i = 0; i < $N; ++i) {
    fd[i] = y1[i] - ypd[i];
  }
  return status;
}

void $MODEL_adjust_zero_crossings(N_Vector v, double abstol) {
  double* vd = NV_DATA_S(v);
  for (long i = 0; i < NV_LENGTH_S(v); ++i) {
    if (std::fabs(vd[i]) < abstol) vd[i] = 0.0;
  }
}
`

// Fragments renders the solver glue for a model with n state variables: the
// SolverFailure exception, the three check helpers plus the selector form,
// escalate, the IDA residual callback and the zero-crossing cleanup. The
// residual calls <model>_dynamics, which the kernel defines.
func Fragments(model string, n int) string {
	return strings.NewReplacer(
		"$MODEL", model,
		"$N", strconv.Itoa(n),
		"$ALLOC", strconv.Itoa(int(AllocationFailure)),
		"$FLAG", strconv.Itoa(int(FlagFailure)),
		"$MEMORY", strconv.Itoa(int(MemoryFailure)),
		"$CONV_ALLOC", strconv.Itoa(int(ConventionAllocation)),
		"$CONV_FLAG", strconv.Itoa(int(ConventionStatusFlag)),
		"$CONV_VERBOSE", strconv.Itoa(int(ConventionAllocationVerbose)),
	).Replace(glueSource)
}
