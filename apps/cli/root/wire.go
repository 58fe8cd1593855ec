package root

import (
	"github.com/steeplehq/tenant-provisioner/apps/cli/cmd/bootstrap"
	tenantcmd "github.com/steeplehq/tenant-provisioner/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenantcmd.Command())
}
