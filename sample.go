package leadscore

// sampleLead 是"加载示例线索"使用的预置输入
var sampleLead = map[string]any{
	"Lead Origin":                     "Landing Page Submission",
	"Lead Source":                     "Google",
	"City":                            "Mumbai",
	"Total Time Spent on Website":     90.0,
	"Page Views Per Visit":            5.0,
	"Specialization":                  "Management Studies",
	"How did you hear about us?":      "Online Search",
	"What is your current occupation": "Unemployed",
	"Tags":                            "Interested in Data Science",
}

// Sample 返回示例线索的副本
func Sample() map[string]any {
	out := make(map[string]any, len(sampleLead))
	for k, v := range sampleLead {
		out[k] = v
	}
	return out
}
