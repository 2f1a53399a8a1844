// Copyright (C) 2025 Polyclaw Contributors (dev@polyclaw.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package process abstracts external control-plane command execution.

Every cloud operation polyclaw performs goes through an external CLI
(the `az` tool). Direct exec.Command calls are not testable, so all
invocations go through the Manager interface, which has three modes:

  - Run: synchronous, captured stdout/stderr/exit code
  - RunStreaming: synchronous, output forwarded line-by-line to a sink
  - StartFollowing: long-running, independent stdout/stderr pipes with
    a kill handle (used by the log stream multiplexer)

MockManager records every invocation and delegates to caller-supplied
function fields, enabling deterministic pipeline tests without a cloud
account or the az binary.
*/
package process
