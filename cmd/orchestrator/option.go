package main

// Options is the root command that groups sub-commands. Struct tags are
// interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Config string     `short:"f" long:"config" description:"orchestrator config YAML path (not read: serve and catalog load config.yaml from the workspace root)"`
	Serve  *ServeCmd  `command:"serve" description:"Start the orchestrator (discover, spawn, route, serve)"`
	MCP    *MCPCmd    `command:"mcp" description:"Inspect configured MCPs"`
	Catalog *CatalogCmd `command:"catalog" description:"Print the tool route table without starting the server"`
	Version bool       `short:"v" long:"version" description:"Print version and exit"`
}

// Init instantiates the sub-command referenced by the first argument so
// flags.Parse can populate its fields.
func (o *Options) Init(firstArg string) {
	switch firstArg {
	case "serve":
		o.Serve = &ServeCmd{}
	case "mcp":
		o.MCP = &MCPCmd{}
	case "catalog":
		o.Catalog = &CatalogCmd{}
	}
}
