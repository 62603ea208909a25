package transport

import "testing"

func TestNewSASLClient(t *testing.T) {
	for _, mech := range []string{"PLAIN", "LOGIN", "ANONYMOUS", "CRAM-MD5"} {
		client, err := newSASLClient(mech, "user", "secret")
		if err != nil {
			t.Errorf("newSASLClient(%q): %v", mech, err)
			continue
		}
		if client == nil {
			t.Errorf("newSASLClient(%q) returned nil client", mech)
		}
	}

	if _, err := newSASLClient("SCRAM-SHA-1", "user", "secret"); err == nil {
		t.Error("unsupported mechanism accepted")
	}
}

func TestCRAMMD5Response(t *testing.T) {
	// Challenge and digest from the RFC 2195 example.
	client := &cramMD5Client{user: "tim", secret: "tanstaaftanstaaf"}

	mech, initial, err := client.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if mech != "CRAM-MD5" || initial != nil {
		t.Fatalf("Start = %q, %v; want CRAM-MD5 with no initial response", mech, initial)
	}

	resp, err := client.Next([]byte("<1896.697170952@postoffice.reston.mci.net>"))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := "tim b913a602c7eda7a495b4e6e7334d3890"
	if string(resp) != want {
		t.Fatalf("response = %q, want %q", resp, want)
	}
}
