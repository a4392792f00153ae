package fkview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateViewCodeBasic(t *testing.T) {
	mysql := "CREATE ALGORITHM=UNDEFINED DEFINER=`root`@`%` SQL SECURITY DEFINER VIEW `v1` AS select `t1`.`id` AS `id` from `t1` where (`t1`.`active` = 1)"
	got := translateViewCode("public", "v1", mysql)
	assert.Equal(t, `CREATE OR REPLACE VIEW "public"."v1" AS select "t1"."id" AS "id" from "public"."t1" where ("t1"."active" = 1);`, got)
}

func TestTranslateViewCodeJoin(t *testing.T) {
	mysql := "CREATE VIEW `v2` AS select * from `a` join `b` on `a`.`id` = `b`.`id`"
	got := translateViewCode("s", "v2", mysql)
	assert.Contains(t, got, `from "s"."a"`)
	assert.Contains(t, got, `join "s"."b"`)
}

func TestQuoteAll(t *testing.T) {
	assert.Equal(t, []string{`"a"`, `"b"`}, quoteAll([]string{"a", "b"}))
	assert.Equal(t, []string{}, quoteAll([]string{}))
}
