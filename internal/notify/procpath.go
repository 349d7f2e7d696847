package notify

import (
	"fmt"
	"os"
)

// ResolveBinaryPath returns the executable path of pid via /proc, used to
// key syscall-database observations by binary rather than by the
// short-lived pid the kernel notification carries.
func ResolveBinaryPath(pid uint32) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
}
