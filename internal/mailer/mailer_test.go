package mailer

import (
	"strings"
	"testing"
)

func TestRenderTemplates(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{TemplateVerifyEmail, map[string]string{"Name": "Abebe", "Code": "123456", "ValidFor": "24 hours"}, "123456"},
		{TemplateResetPassword, map[string]string{"Name": "Abebe", "Code": "654321", "ValidFor": "10 minutes"}, "654321"},
		{TemplateNotification, map[string]string{"Title": "Deal approved", "Message": "ok"}, "Deal approved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := Render(tt.name, tt.data)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if !strings.Contains(body, tt.want) {
				t.Fatalf("body = %q, want it to contain %q", body, tt.want)
			}
		})
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	body, err := Render(TemplateNotification, map[string]string{"Title": "<script>x</script>", "Message": ""})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Fatalf("body = %q, want escaped markup", body)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := Render("missing", nil); err == nil {
		t.Fatal("err = nil, want error for unknown template")
	}
}
