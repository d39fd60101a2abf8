package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
)

const baseURL = "http://localhost:8080"

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	// 1. Health Check
	checkEndpoint("GET", "/health", nil, 200)

	// 2. Upload a statement
	userID := "e2e-user"
	uploadStatement(userID)

	// 3. Get Holdings
	holdingID := firstHoldingID(userID)
	fmt.Printf("First Holding ID: %s\n", holdingID)

	// 4. Trigger NAV refresh
	checkEndpoint("POST", "/portfolio/refresh-nav", map[string]string{"user_id": userID}, 200)

	// 5. Get Notifications
	checkEndpoint("GET", "/portfolio/notifications/"+userID, nil, 200)

	// 6. Delete the holding
	checkEndpoint("DELETE", "/portfolio/holdings/"+holdingID+"?user_id="+userID, nil, 200)

	// 7. Verify holdings again
	checkEndpoint("GET", "/portfolio/holdings/"+userID, nil, 200)

	fmt.Println("ALL TESTS PASSED")
}

func checkEndpoint(method, path string, body interface{}, expectedStatus int) {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
}

// uploadStatement builds a minimal consolidated account statement worksheet in
// memory and POSTs it as a multipart upload.
func uploadStatement(userID string) {
	fmt.Println("Uploading statement...")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Consolidated Account Statement"},
		{"Folio No", "Scheme Name", "AMC", "Unit Balance", "NAV", "Cost Value"},
		{"123456789012", "HDFC Flexi Cap Fund - Direct Plan - Growth", "HDFC Mutual Fund", "100.5", "45.25", "4000.00"},
		{"123456789012", "ICICI Prudential Bluechip Fund - Growth", "ICICI Prudential Mutual Fund", "50.0", "80.00", "3500.00"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			log.Fatalf("Build sheet failed: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		log.Fatalf("Write sheet failed: %v", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("user_id", userID)
	part, _ := w.CreateFormFile("file", "statement.xlsx")
	io.Copy(part, buf)
	w.Close()

	resp, err := http.Post(baseURL+"/portfolio/upload", w.FormDataContentType(), &body)
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		log.Fatalf("Upload failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	fmt.Printf("Upload response: %s\n", string(respBody))
}

func firstHoldingID(userID string) string {
	resp, err := http.Get(baseURL + "/portfolio/holdings/" + userID)
	if err != nil {
		log.Fatalf("Get holdings failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		log.Fatalf("Get holdings failed with status %d: %s", resp.StatusCode, string(body))
	}

	var res struct {
		Holdings []struct {
			ID string `json:"id"`
		} `json:"holdings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		log.Fatalf("Decode holdings failed: %v", err)
	}
	if len(res.Holdings) == 0 {
		log.Fatal("Expected at least one holding after upload")
	}
	return res.Holdings[0].ID
}
