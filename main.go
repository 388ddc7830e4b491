// @title                       Clients API
// @version                     1.0
// @description                 Per-user client management API.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import "github.com/clientdesk/clients-api/cmd"

func main() {
	cmd.Execute()
}
