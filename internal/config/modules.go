package config

import (
	_ "github.com/feizhen/virtual-try-on/internal/operation/garment"
	_ "github.com/feizhen/virtual-try-on/internal/operation/modelgen"
	_ "github.com/feizhen/virtual-try-on/internal/operation/occasion"
	_ "github.com/feizhen/virtual-try-on/internal/operation/pose"
	_ "github.com/feizhen/virtual-try-on/internal/operation/recolor"
	_ "github.com/feizhen/virtual-try-on/internal/operation/styling"
	_ "github.com/feizhen/virtual-try-on/internal/operation/tryon"
)
