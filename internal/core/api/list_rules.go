package api

import (
	"context"

	"github.com/solatis/segmentkeeper/internal/i18n"
	"google.golang.org/protobuf/types/known/structpb"
)

// ListRules describes the active rule variants in the requested locale,
// sorted by rule key.
func (s *RuleService) ListRules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tag := i18n.ParseLocale(req.GetFields()["locale"].GetStringValue(), s.defaultLocale)

	active := s.registry.Rules()
	list := make([]interface{}, 0, len(active))
	for _, r := range active {
		list = append(list, map[string]interface{}{
			"rule_key":          r.RuleKey(),
			"category":          r.RuleCategoryKey(),
			"icon":              r.Icon(),
			"name":              r.Name(tag),
			"description":       r.Description(tag),
			"short_description": r.ShortDescription(tag),
			"instantiable":      r.Instantiable(),
		})
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"locale": tag.String(),
		"rules":  list,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return resp, nil
}
