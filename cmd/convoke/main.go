// Command convoke runs the session broker's command-line surface
//: `convoke broker`, `convoke migrate`, `convoke doctor`.
package main

import "github.com/nextlevelbuilder/convoke/cmd"

func main() {
	cmd.Execute()
}
