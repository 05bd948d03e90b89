/*
Package sandbox provides the isolation contract for analysis processes.

The runner interacts with a Backend only through four limit knobs
(MaxCPU, MaxWall, MaxMem, MaxOut) plus a workspace path, a scrubbed
environment, and an optional unprivileged uid/gid. Two backends exist:

  - process: direct child in its own process group with kernel rlimits
    applied via prlimit after start. Filesystem confinement is best-effort
    (workspace-relative paths only, dropped privileges); network
    isolation requires the oci backend.
  - oci: writes an OCI runtime-spec bundle (read-only rootfs, workspace
    bound with only output/ and tmp/ writable, fresh network namespace
    with no interfaces) and runs it through a runc-compatible runtime.

Both backends terminate with the same graceful-then-kill protocol driven
by the runner's supervisor: SIGTERM to the process group, SIGKILL after
the grace window.
*/
package sandbox
