package dbmodel

import (
	"github.com/go-pg/pg/v10/orm"
)

// The go-pg ORM requires the join tables of many-to-many relationships
// to be registered before the relationships are traversed.
func init() {
	orm.RegisterTable((*DHCPServerToOptionData)(nil))
	orm.RegisterTable((*DHCPServerToClientClass)(nil))
	orm.RegisterTable((*ClientClassToOptionData)(nil))
	orm.RegisterTable((*PrefixConfigToOptionData)(nil))
	orm.RegisterTable((*PrefixConfigToClientClass)(nil))
}
