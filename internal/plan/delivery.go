package plan

import "strings"

// DetectDeliveryIntent is a pure function of the user request and the
// configured delivery verbs/tool. It performs a case-insensitive substring
// scan; verbs and the required tool are never hard-coded into this function.
func DetectDeliveryIntent(request string, verbs []string, requiredTool string) DeliveryIntent {
	lower := strings.ToLower(request)
	var detected []string
	for _, v := range verbs {
		if v == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(v)) {
			detected = append(detected, v)
		}
	}
	return DeliveryIntent{
		HasIntent:     len(detected) > 0,
		DetectedVerbs: detected,
		RequiredTool:  requiredTool,
	}
}
