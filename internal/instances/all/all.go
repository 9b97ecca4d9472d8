// Package all registers every instance store backend with the instances
// registry. Import it for side effects from binaries.
package all

import (
	_ "formsummary/internal/instances/dirstore"
	_ "formsummary/internal/instances/mssql"
	_ "formsummary/internal/instances/postgres"
	_ "formsummary/internal/instances/sqlite"
)
